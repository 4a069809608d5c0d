// Package config loads the agent configuration.
//
// The configuration is HCL, read from a single file or from every .hcl file
// in a directory. Expressions may call env(name[, default]), file(path),
// trimspace(s) and lower(s), and may reference the variables hostname and os.
// A .env file can be loaded first with LoadEnv so env() sees its values.
//
//	repository {
//	  url           = "git@github.com:acme/endpoint-tasks.git"
//	  branch        = "main"
//	  host_key      = trimspace(file("github.pub"))
//	  poll_interval = "10s"
//	}
//
//	credentials_file = "/etc/repotaskrun/credentials.toml"
//
//	script ".ps1" {
//	  command = ["pwsh", "-NoProfile", "-NonInteractive", "-File"]
//	}
//
//	membership {
//	  tenant_id = env("ENTRA_TENANT_ID")
//	  client_id = env("ENTRA_CLIENT_ID")
//	}
//
// Secrets never live in this file; see package credentials.
package config
