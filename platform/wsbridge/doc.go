// Package wsbridge connects tenants to a chat-platform bridge over WebSocket.
//
// The bridge is a sidecar that holds the real platform session for one bot
// token. Each tenant gets its own socket, authenticated by the token in the
// Authorization header. Frames are JSON objects:
//
//	{"type":"req","id":"<uuid>","method":"send","params":{...}}
//	{"type":"res","id":"<uuid>","ok":true,"payload":{...}}
//	{"type":"res","id":"<uuid>","ok":false,"error":{"code":"not_found","message":"..."}}
//	{"type":"event","event":"ready|message|error|disconnected","payload":{...}}
//
// Responses are matched to requests by id, so calls may be issued
// concurrently over one socket. When the socket drops, pending calls fail
// with ErrConnectionLost and the connection emits a disconnected event
// before closing its event stream.
package wsbridge
