// Package template implements the crowd-placement evaluation engine: a
// DAG of template nodes that transform, fan out, filter, or terminate a
// propagating build request. A graph is compiled once from node kinds
// and settings, then evaluated top-down by recursive delegation; each
// evaluation places agents into the host scene and registers them with
// the agent runtime.
package template
