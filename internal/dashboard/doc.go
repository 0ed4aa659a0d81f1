/*
Package dashboard serves a pipeline over HTTP.

Routes:

	GET    /api/stats       current statistics and worker lists
	POST   /api/start       start with {"producers":n,"consumers":m} or the configured defaults
	POST   /api/stop        stop and let consumers drain
	POST   /api/producers   add a producer
	DELETE /api/producers   remove the most recent producer
	POST   /api/consumers   add a consumer
	DELETE /api/consumers   remove the most recent consumer
	GET    /ws              websocket stream of /api/stats payloads
	GET    /metrics         Prometheus exposition

The websocket pushes one payload on connect and then at most one per push
interval while change notifications keep arriving.
*/
package dashboard
