// Package config loads router class configuration from a hierarchical
// key/value store (Consul) rooted at QueueRouter/, validating the mandatory
// keys and assembling a classconfig.Registry.
package config
