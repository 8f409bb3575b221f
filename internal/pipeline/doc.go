// Package pipeline proxies runs of named pipelines to the pipeline service
// (PIPE_URL), gated by the ACL.
//
// # Run Contract
//
// The pipeline service receives:
//
//	POST <PIPE_URL>/run?stream=true|false
//	Authorization: Bearer <PIPE_KEY>
//	Content-Type: application/json
//
//	{
//	  "pipe_id": "...",
//	  "metadata": { ... },
//	  "user_prompt": "..." | null
//	}
//
// With stream=false it answers with a JSON document that is handed back to
// the caller re-encoded. With stream=true it answers with server-sent events;
// every "data:" line holding a JSON object is forwarded to the caller's event
// sink as-is, and "data: [DONE]" ends the stream.
package pipeline
