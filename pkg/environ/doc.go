// Package environ models the build environment the resolver configures.
//
// An Environment is a string-keyed variable map plus the ordered list of
// provider names that have been applied to it. Providers (tools) are named
// units of environment setup loaded from YAML manifests or registered in Go;
// applying one mutates the environment through the Mutator write surface.
//
// The Recorder is a Mutator decorator that logs every written key passing a
// filter. It exists for provider discovery only: the cache trial-applies a
// provider to a clone of the base environment and reads the recorded keys to
// learn which components the provider supplies, without any side effects
// reaching the real environment.
package environ
