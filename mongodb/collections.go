package mongodb

const (
	ClientsCollection      = "oauth_clients"
	AuthRequestsCollection = "oauth_auth_requests"
	AccessGrantsCollection = "oauth_access_grants"
	AccessTokensCollection = "oauth_access_tokens"
	IssuersCollection      = "oauth_issuers"
)
