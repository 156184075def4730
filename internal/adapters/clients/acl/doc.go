// Package acl keeps the remote posts feed out of the domain.
//
// [RemoteSource] downloads the feed, keeps its first records and turns each
// post into a quote: the title becomes the text and the body becomes the
// category. Nothing outside this package sees the feed's JSON or its status
// codes. Failures leave as domain errors:
//
//   - 404 becomes [domain.ErrNotFound]
//   - 409 becomes [domain.ErrConflict]
//   - 400, 422 and other 4xx become [domain.ErrValidation]
//   - 401, 403, 429, 5xx, transport failures and an open circuit become [domain.ErrUnavailable]
package acl
