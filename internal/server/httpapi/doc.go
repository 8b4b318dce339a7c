// Package httpapi exposes the user service over HTTP/JSON.
//
// Routes:
//
//	POST /auth/external     exchange an identity assertion for a session token
//	GET  /users/me          current user with profile
//	PUT  /users/me          update name/picture
//	GET  /users/me/profile  current profile
//	PUT  /users/me/profile  partial profile update
//	POST /users/me/avatar   presigned avatar upload slot
//	GET  /health            liveness
//	GET  /                  welcome message
//
// Every route under /users requires "Authorization: Bearer <token>". Any
// token problem yields the same 401 body so callers cannot tell a forged
// token from an expired one.
package httpapi
