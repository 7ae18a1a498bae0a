// Package retell implements a small voice-call demo against the Retell
// conversational-AI API.
//
// # Overview
//
// Two pieces make up the demo:
//   - a token endpoint (Server) that provisions a web call for the
//     configured agent and returns the provider's response unchanged
//   - a call controller (Controller) that fetches a credential from that
//     endpoint, hands it to a real-time CallClient and tracks the call as
//     idle, calling, active or error
//
// Audio, speech recognition and agent logic all live at the provider.
//
// # Token endpoint
//
//	cfg := retell.NewConfig()
//	srv := retell.NewServer(cfg, retell.NewAPIClientFromConfig(cfg), nil, retell.NewMetrics(nil))
//	http.ListenAndServe(cfg.ListenAddr, retell.NewRouter(srv))
//
// POST /api/register-call answers with the provisioning body or with
// {"error": "..."} and status 500.
//
// # Call controller
//
//	tokens := retell.NewTokenManager(cfg.RegisterCallURL, nil, cfg.FetchTimeoutDuration())
//	client := retell.NewWebSocketClient(cfg.CallWsEndpoint, nil, cfg.DebugWebsocket)
//	ctrl := retell.NewController(tokens, client)
//	ctrl.Open(ctx)
//	defer ctrl.Close()
//
//	ctrl.Subscribe(func(s retell.UIState) {
//		fmt.Println(retell.RenderView(s, cfg.AgentID))
//	})
//	ctrl.Toggle(ctx) // start
//	ctrl.Toggle(ctx) // stop
//
// The state machine itself is Transition, a pure function over UIState
// and Input; the Controller only performs the effects it returns.
//
// # Configuration
//
// NewConfig reads RETELL_API_KEY, NEXT_PUBLIC_RETELL_AGENT_ID and the
// optional RETELL_* settings from the environment and a .env file.
package retell
