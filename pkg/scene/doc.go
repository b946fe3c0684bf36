// Package scene defines the host-scene contracts the placement engine
// builds against. The engine reads objects, groups, meshes, and materials
// through the Scene interface and registers placed agents through the
// AgentRuntime interface. Implementations (memscene) provide concrete
// storage behind these interfaces.
package scene
