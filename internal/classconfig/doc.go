// Package classconfig defines the router's class configuration model.
//
// A class is a named unit of stage configuration: work classes define a
// whole process route and are the entry point for publishStart; exchange
// classes are a single stage in a route; notify classes are side-channel
// publish targets reached via publishNotify rather than the main route.
package classconfig
