// Package reposync mirrors a remote git repository into a local directory.
//
// Every Sync performs a full clone into a staging directory next to the
// destination, strips the VCS metadata, and swaps the staging tree into
// place. Sync returns the checked-out commit; deciding whether the content
// changed is left to whoever persists the previous revision.
//
// SSH credentials are materialized only for the duration of a clone: a
// private temporary directory receives the key and a known_hosts file, and is
// removed when Sync returns, whether or not the clone succeeded.
//
// Errors are *Error values whose kind is one of ErrNetwork, ErrCredential or
// ErrRepository. Callers retry on ErrNetwork.
package reposync
