package common

// TokenHeaderName is the HTTP request header carrying the bearer token
// issued by /account and /login.
const TokenHeaderName = "token"
