// Package remote defines the sync collaborator contracts and the HTTP client
// that implements them.
//
// The engine depends only on three small interfaces:
//
//	Authenticator.Authenticate(ctx) -> Session
//	Submitter.Submit(ctx, Session, StatSnapshot) -> Ranking
//	Fetcher.FetchRanking(ctx, Session) -> Ranking
//
// Client implements all three against the reference server in
// internal/server. It memoizes the device token until shortly before it
// expires and collapses concurrent logins into one request.
//
// Errors from the collaborators are *Error values. Transport failures and
// 5xx responses are transient (worth retrying later); 4xx responses are not.
package remote
