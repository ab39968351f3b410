package server

import (
	"context"
	"net/http"
	"testing"

	"helpboard/internal/models"
	"helpboard/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequests_Lifecycle(t *testing.T) {
	ts := newTestServer(t, false)
	owner := testutil.CreateUser(t, ts.db, "Owner")
	requester := testutil.CreateUser(t, ts.db, "Requester")
	stranger := testutil.CreateUser(t, ts.db, "Stranger")
	item := testutil.CreateItem(t, ts.db, owner.ID)
	ownerAuth := ts.tokenFor(t, owner)
	requesterAuth := ts.tokenFor(t, requester)
	openPath := "/api/items/" + itoa(item.ID) + "/request"

	ts.expectError(t, http.MethodPost, openPath, ownerAuth, nil, http.StatusBadRequest, models.CodeSelfReference)

	var req models.Request
	expectStatus(t, http.StatusCreated, ts.call(t, http.MethodPost, openPath, requesterAuth, nil, &req))
	assert.Equal(t, models.RequestPending, req.Status)
	require.NotNil(t, req.Item)
	assert.Equal(t, models.ItemRequested, req.Item.Status)

	ts.expectError(t, http.MethodPost, openPath, ts.tokenFor(t, stranger), nil, http.StatusConflict, models.CodeTargetUnavailable)

	reqPath := "/api/requests/" + itoa(req.ID)
	ts.expectError(t, http.MethodGet, reqPath, ts.tokenFor(t, stranger), nil, http.StatusForbidden, models.CodeForbidden)
	expectStatus(t, http.StatusOK, ts.call(t, http.MethodGet, reqPath, requesterAuth, nil, nil))

	ts.expectError(t, http.MethodPatch, reqPath+"/status", ownerAuth, map[string]string{"status": "LOST"},
		http.StatusBadRequest, models.CodeValidation)
	ts.expectError(t, http.MethodPatch, reqPath+"/status", requesterAuth, map[string]string{"status": "APPROVED"},
		http.StatusForbidden, models.CodeForbidden)
	ts.expectError(t, http.MethodPatch, reqPath+"/status", ownerAuth, map[string]string{"status": "RETURNED"},
		http.StatusConflict, models.CodeInvalidTransition)

	var approved models.Request
	expectStatus(t, http.StatusOK, ts.call(t, http.MethodPatch, reqPath+"/status", ownerAuth, map[string]string{"status": "approved"}, &approved))
	assert.Equal(t, models.RequestApproved, approved.Status)
	assert.NotNil(t, approved.ApprovedAt)
	require.NotNil(t, approved.Item)
	assert.Equal(t, models.ItemApproved, approved.Item.Status)

	var returned models.Request
	expectStatus(t, http.StatusOK, ts.call(t, http.MethodPatch, reqPath+"/status", ownerAuth, map[string]string{"status": "RETURNED"}, &returned))
	assert.Equal(t, models.RequestReturned, returned.Status)
	assert.NotNil(t, returned.ClosedAt)
	assert.Equal(t, models.ItemCompleted, returned.Item.Status)
}

func TestRequests_MessagesHistory(t *testing.T) {
	ts := newTestServer(t, false)
	owner := testutil.CreateUser(t, ts.db, "Owner")
	requester := testutil.CreateUser(t, ts.db, "Requester")
	stranger := testutil.CreateUser(t, ts.db, "Stranger")
	item := testutil.CreateItem(t, ts.db, owner.ID)

	ctx := context.Background()
	req, err := ts.s.requests.Open(ctx, item.ID, requester.ID)
	require.NoError(t, err)
	_, err = ts.s.requests.Transition(ctx, req.ID, owner.ID, models.RequestApproved)
	require.NoError(t, err)
	for _, text := range []string{"hello", "is it still free?", "yes"} {
		_, err := ts.s.chatGate.Send(ctx, requester.Identity(), req.ID, text)
		require.NoError(t, err)
	}

	path := "/api/requests/" + itoa(req.ID) + "/messages"
	var msgs []models.MessageView
	expectStatus(t, http.StatusOK, ts.call(t, http.MethodGet, path, ts.tokenFor(t, owner), nil, &msgs))
	require.Len(t, msgs, 3)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, uint64(3), msgs[2].Seq)

	expectStatus(t, http.StatusOK, ts.call(t, http.MethodGet, path+"?after_seq=1&limit=1", ts.tokenFor(t, owner), nil, &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, uint64(2), msgs[0].Seq)

	ts.expectError(t, http.MethodGet, path+"?after_seq=x", ts.tokenFor(t, owner), nil, http.StatusBadRequest, models.CodeValidation)
	ts.expectError(t, http.MethodGet, path, ts.tokenFor(t, stranger), nil, http.StatusForbidden, models.CodeForbidden)
}

func TestUsers_ProfileAndRequests(t *testing.T) {
	ts := newTestServer(t, false)
	owner := testutil.CreateUser(t, ts.db, "Owner")
	requester := testutil.CreateUser(t, ts.db, "Requester")
	item := testutil.CreateItem(t, ts.db, owner.ID)
	_, err := ts.s.requests.Open(context.Background(), item.ID, requester.ID)
	require.NoError(t, err)

	var profile userProfile
	expectStatus(t, http.StatusOK, ts.call(t, http.MethodGet, "/api/users/"+itoa(owner.ID), "", nil, &profile))
	assert.Equal(t, owner.Name, profile.Name)
	assert.Equal(t, owner.Location, profile.Location)

	var mine []models.Request
	expectStatus(t, http.StatusOK, ts.call(t, http.MethodGet, "/api/users/"+itoa(owner.ID)+"/requests?role=owner", ts.tokenFor(t, owner), nil, &mine))
	assert.Len(t, mine, 1)
	expectStatus(t, http.StatusOK, ts.call(t, http.MethodGet, "/api/users/"+itoa(owner.ID)+"/requests?role=requester", ts.tokenFor(t, owner), nil, &mine))
	assert.Empty(t, mine)

	// without a role both sides are listed
	theirs := testutil.CreateItem(t, ts.db, requester.ID)
	_, err = ts.s.requests.Open(context.Background(), theirs.ID, owner.ID)
	require.NoError(t, err)
	expectStatus(t, http.StatusOK, ts.call(t, http.MethodGet, "/api/users/"+itoa(owner.ID)+"/requests", ts.tokenFor(t, owner), nil, &mine))
	require.Len(t, mine, 2)
	assert.Equal(t, theirs.ID, mine[0].ItemID)
	expectStatus(t, http.StatusOK, ts.call(t, http.MethodGet, "/api/users/"+itoa(owner.ID)+"/requests?role=any", ts.tokenFor(t, owner), nil, &mine))
	assert.Len(t, mine, 2)

	ts.expectError(t, http.MethodGet, "/api/users/"+itoa(owner.ID)+"/requests", ts.tokenFor(t, requester), nil,
		http.StatusForbidden, models.CodeForbidden)
	ts.expectError(t, http.MethodGet, "/api/users/"+itoa(owner.ID)+"/requests?role=admin", ts.tokenFor(t, owner), nil,
		http.StatusBadRequest, models.CodeValidation)
	ts.expectError(t, http.MethodGet, "/api/users/9999", "", nil, http.StatusNotFound, models.CodeNotFound)
}
