// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz and /readyz for health checks, GET /metrics for Prometheus.
//   - GET /api/home, /api/novels/{slug} and /api/novels/{slug}/chapters/{n}
//     served from the in-memory reader caches, plus POST .../prefetch.
//   - POST /api/auth/{signin,signup,refresh,signout} and GET /api/auth/me.
//   - /api/admin/... for superadmins: chapters, covers, presets, the source
//     importer, and POST /api/admin/translate which relays the completion
//     stream as server-sent events.
//
// Everything else falls through to the frontend handler.
package api
