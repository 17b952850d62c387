// Package runtime adapts the two wrapped runtimes to one launcher contract.
//
// Ownership boundary:
// - scripting mode: bootstrap script assembly and the JRuby engine
//
// - server mode: webserver.properties resolution and main class invocation
//
// - exit status and invocation failure classification
//
// Both runtimes execute in a child JVM whose classpath is exactly the
// isolated loader's module set.
package runtime
