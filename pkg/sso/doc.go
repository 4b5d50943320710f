// Package sso implements single sign-on via OpenID Connect. External
// identities are linked to local accounts by stable subject, matched by
// email on first sign-in, and optionally auto-provisioned.
package sso
