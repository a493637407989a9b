package compose

// =============================================================================
// Definition - Main Output Type
// =============================================================================

// Definition is a checked service definition.
type Definition struct {
	// Services sorted by name.
	Services []Service `json:"services"`

	// Variables are the ${VAR} names referenced by the raw file, in order of
	// first appearance.
	Variables []string `json:"variables,omitempty"`
}

// =============================================================================
// Service Types
// =============================================================================

// Service represents a single service of a definition.
type Service struct {
	Name        string            `json:"name"`
	Image       string            `json:"image"`
	Command     []string          `json:"command,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Volumes     []VolumeMount     `json:"volumes,omitempty"`
	Ports       []Port            `json:"ports,omitempty"`
	WorkingDir  string            `json:"working_dir,omitempty"`
}

// VolumeMount represents a volume mount in a service.
type VolumeMount struct {
	Type     VolumeMountType `json:"type"`
	Source   string          `json:"source"`
	Target   string          `json:"target"`
	ReadOnly bool            `json:"readonly"`
}

// VolumeMountType represents the type of volume mount.
type VolumeMountType string

const (
	VolumeMountTypeBind   VolumeMountType = "bind"
	VolumeMountTypeVolume VolumeMountType = "volume"
	VolumeMountTypeTmpfs  VolumeMountType = "tmpfs"
)

// Port represents a port mapping.
type Port struct {
	Target    uint32 `json:"target"`              // Container port
	Published uint32 `json:"published,omitempty"` // Host port (0 = dynamic)
	Protocol  string `json:"protocol,omitempty"`  // tcp, udp
	HostIP    string `json:"host_ip,omitempty"`
}
