// Package gateway runs tool calls from the tool-calling bridge through a
// fixed pipeline and returns a response envelope.
//
// Each call passes, in order:
//
//	authenticate -> resolve principal -> authorize -> admit (rate limit)
//	-> validate arguments -> moderate content -> dispatch -> envelope
//
// A stage that fails ends the call with a stable error code; no later stage
// runs. The rate limiter is consulted only after authorization succeeds, and
// content is moderated before the session registry is touched.
//
// # Tools
//
//	send_message      send_message + bot:<id>   moderated
//	get_messages      get_messages + bot:<id>
//	get_channel_info  get_channel_info + bot:<id>  cached
//	search_messages   search_messages + bot:<id>
//	delete_message    delete_message + bot:<id>
//	get_guild_info    get_guild_info + bot:<id>    cached
//	get_bots          get_bots (filtered to the caller's tenants)
//	moderate_content  moderate_content (+ bot:<id> when applying an action)
//	start_bot         bots:manage + bot:<id>
//	stop_bot          bots:manage + bot:<id>
//	issue_token       any authenticated principal
//
// "admin" and "*" satisfy every permission, including tenant scopes.
package gateway
