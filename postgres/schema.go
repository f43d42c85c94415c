package postgres

// schema is applied by Migrate. Every statement is idempotent.
const schema = `
create table if not exists oauth_clients (
	id             text primary key,
	secret         text not null,
	display_name   text not null default '',
	link           text not null default '',
	image_url      text not null default '',
	redirect_uri   text not null default '',
	scope          text not null default '',
	notes          text not null default '',
	created_at     timestamptz not null,
	revoked_at     timestamptz,
	tokens_granted bigint not null default 0,
	tokens_revoked bigint not null default 0
);
create index if not exists oauth_clients_display_name_idx on oauth_clients (display_name);
create index if not exists oauth_clients_link_idx on oauth_clients (link);

create table if not exists oauth_auth_requests (
	id            text primary key,
	client_id     text not null,
	scope         text not null default '',
	redirect_uri  text not null default '',
	response_type text not null,
	state         text not null default '',
	created_at    timestamptz not null,
	grant_code    text not null default '',
	access_token  text not null default '',
	authorized_at timestamptz,
	revoked_at    timestamptz
);
create index if not exists oauth_auth_requests_client_idx on oauth_auth_requests (client_id);

create table if not exists oauth_access_grants (
	code         text primary key,
	identity     text not null,
	client_id    text not null,
	scope        text not null default '',
	redirect_uri text not null default '',
	created_at   timestamptz not null,
	granted_at   timestamptz,
	expires_at   timestamptz not null,
	access_token text,
	revoked_at   timestamptz
);
create index if not exists oauth_access_grants_client_idx on oauth_access_grants (client_id);

create table if not exists oauth_access_tokens (
	token       text primary key,
	identity    text not null default '',
	client_id   text not null,
	scope       text not null default '',
	created_at  timestamptz not null,
	expires_at  timestamptz,
	revoked_at  timestamptz,
	last_access timestamptz,
	prev_access timestamptz
);
create index if not exists oauth_access_tokens_client_idx on oauth_access_tokens (client_id, created_at);
create index if not exists oauth_access_tokens_lookup_idx on oauth_access_tokens (identity, client_id, scope);

create table if not exists oauth_issuers (
	identifier  text primary key,
	hmac_secret text not null default '',
	public_key  text not null default '',
	notes       text not null default '',
	created_at  timestamptz not null,
	updated_at  timestamptz not null
);
`
