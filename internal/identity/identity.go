// Package identity attributes API calls to operators.
//
// An operator presents an HS256 session token issued by OperatorTokenIssuer.
// OptionalOperator verifies it and exposes the claims to handlers, which
// record the token subject as the actor on every lifecycle transition.
// Requests without a token fall back to the actor named in the body.
package identity
