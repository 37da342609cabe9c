// Package config loads the oauth-test-server settings from defaults, an
// optional YAML file, .env files and OAUTH_* environment variables, in
// increasing order of precedence. Command line flags bound by the caller
// take precedence over all of them.
//
// PORT and HOST are honoured alongside OAUTH_PORT and OAUTH_HOST so that the
// server drops into environments that only set the conventional names.
package config
