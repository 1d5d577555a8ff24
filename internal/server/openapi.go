package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Backstage API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Coordination backend for live multi-device escape-room sessions.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /api/sessions/lookup
	getLookup, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/lookup")
	getLookup.SetSummary("Look up session by join code")
	getLookup.SetDescription("Resolves a short join code to the session a device should attach to. Pass code as query parameter.")
	getLookup.AddRespStructure(LookupResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getLookup.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getLookup)

	// GET /api/sessions/{id}
	getState, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}")
	getState.SetSummary("Session state")
	getState.SetDescription("Full session snapshot with per-device aliveness computed from heartbeat age.")
	getState.AddRespStructure(SessionResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getState.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getState)

	// POST /api/sessions/{id}/claim
	postClaim, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{id}/claim")
	postClaim.SetSummary("Claim a device role")
	postClaim.SetDescription("Takes over a role if it is unclaimed, stale, or disconnected. Atomic: a race leaves one winner.")
	postClaim.AddReqStructure(ClaimRequest{})
	postClaim.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	postClaim.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postClaim)

	// POST /api/sessions/{id}/heartbeat
	postHeartbeat, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{id}/heartbeat")
	postHeartbeat.SetSummary("Device heartbeat")
	postHeartbeat.SetDescription("Narrow write of the device's last-seen timestamp only.")
	postHeartbeat.AddReqStructure(HeartbeatRequest{})
	postHeartbeat.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	postHeartbeat.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postHeartbeat)

	// POST /api/sessions/{id}/solve
	postSolve, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{id}/solve")
	postSolve.SetSummary("Submit a puzzle solution")
	postSolve.SetDescription("Matches the answer against the puzzle at the session pointer; a match applies its media effects and advances the session.")
	postSolve.AddReqStructure(SolveRequest{})
	postSolve.AddRespStructure(SolveResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postSolve.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postSolve)

	// GET /api/sessions/{id}/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}/events")
	getEvents.SetSummary("SSE session stream")
	getEvents.SetDescription("Server-Sent Events stream of full session documents, opening with the current snapshot.")
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// GET /api/sessions/{id}/ws
	getWS, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}/ws")
	getWS.SetSummary("Device WebSocket channel")
	getWS.SetDescription("Session documents stream down; heartbeat and ready messages come up on the same connection.")
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getWS)

	// POST /api/admin/sessions
	createSession, _ := r.NewOperationContext(http.MethodPost, "/api/admin/sessions")
	createSession.SetSummary("Create session")
	createSession.SetDescription("Creates a pending session for a theme with a fresh join code. Requires admin key.")
	createSession.AddReqStructure(CreateSessionRequest{})
	createSession.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusCreated))
	createSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(createSession)

	// GET /api/admin/sessions
	listSessions, _ := r.NewOperationContext(http.MethodGet, "/api/admin/sessions")
	listSessions.SetSummary("List sessions")
	listSessions.AddRespStructure([]SessionResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	listSessions.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(listSessions)

	// POST /api/admin/sessions/{id}/start
	postStart, _ := r.NewOperationContext(http.MethodPost, "/api/admin/sessions/{id}/start")
	postStart.SetSummary("Start session")
	postStart.SetDescription("Seeds the primary device with the theme's opening effect (fresh replay token) and flips status to running.")
	postStart.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	postStart.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postStart)

	// POST /api/admin/sessions/{id}/jump
	postJump, _ := r.NewOperationContext(http.MethodPost, "/api/admin/sessions/{id}/jump")
	postJump.SetSummary("Jump to an arbitrary puzzle")
	postJump.SetDescription("Reconstructs the session state as if every trigger puzzle below target had been solved in order, combined with the requested status.")
	postJump.AddReqStructure(JumpRequest{})
	postJump.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	postJump.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postJump)

	// POST /api/admin/sessions/{id}/resync
	postResync, _ := r.NewOperationContext(http.MethodPost, "/api/admin/sessions/{id}/resync")
	postResync.SetSummary("Resync video playback")
	postResync.SetDescription("Rewrites the replay token of every non-empty video so subscribing clients restart playback.")
	postResync.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	postResync.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postResync)

	// GET /api/admin/themes
	listThemes, _ := r.NewOperationContext(http.MethodGet, "/api/admin/themes")
	listThemes.SetSummary("List themes")
	listThemes.AddRespStructure([]ThemeSummary{}, openapi.WithHTTPStatus(http.StatusOK))
	listThemes.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(listThemes)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.Encode(spec)
	}
}
