// Package secure keeps generated credentials out of ordinary heap memory.
//
// A SecureBuffer wraps a memguard enclave: the plaintext is encrypted while
// at rest and only decrypted into a locked, guard-paged buffer for the short
// window in which it is written into SQL or handed to a credential sink.
//
// Call memguard.Purge (via secure.Purge) before the process exits so any
// remaining locked buffers are wiped.
package secure
