package compose

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// VolumeMaxDepth is the maximum number of path segments of a bind source.
const VolumeMaxDepth = 15

// =============================================================================
// Parser Functions
// =============================================================================

// ParseServiceDefinition parses and checks a docker-compose.yml file.
// This is a pure function - no I/O, no side effects.
//
// Rules:
//   - at least one service, each with an image
//   - an image may only use ${VAR} placeholders that carry a default
//   - volumes are bind mounts of relative paths inside the service folder
func ParseServiceDefinition(yamlContent string) (*Definition, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil || dict == nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	// Images are checked before interpolation replaces placeholders.
	if err := validateImages(dict); err != nil {
		return nil, err
	}

	project, err := loadProject(yamlContent, dict)
	if err != nil {
		return nil, err
	}

	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	def := &Definition{
		Services:  make([]Service, 0, len(project.Services)),
		Variables: ExtractVariables(yamlContent),
	}
	for _, svc := range project.Services {
		converted, err := convertService(svc)
		if err != nil {
			return nil, err
		}
		def.Services = append(def.Services, converted)
	}
	sort.Slice(def.Services, func(i, j int) bool {
		return def.Services[i].Name < def.Services[j].Name
	})

	for _, svc := range def.Services {
		if err := validateVolumes(svc); err != nil {
			return nil, err
		}
		if err := validatePorts(svc); err != nil {
			return nil, err
		}
	}

	return def, nil
}

// MainService returns the service a launcher starts: the first by name.
func (d *Definition) MainService() (Service, bool) {
	if d == nil || len(d.Services) == 0 {
		return Service{}, false
	}
	return d.Services[0], true
}

// loadProject loads a compose spec using compose-go
func loadProject(yamlContent string, dict map[string]interface{}) (*types.Project, error) {
	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("servicemeta", false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		// Sources stay relative to the service folder.
		opts.ResolvePaths = false
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "image") && strings.Contains(errStr, "build") {
			return nil, NewParseError("", "service must have an image", ErrServiceNoImage)
		}
		return nil, NewParseError("", errStr, ErrInvalidYAML)
	}
	return project, nil
}

// convertService converts a compose-go service to our Service type
func convertService(svc types.ServiceConfig) (Service, error) {
	if svc.Image == "" {
		return Service{}, NewParseError("services."+svc.Name, "service must have an image", ErrServiceNoImage)
	}

	service := Service{
		Name:        svc.Name,
		Image:       svc.Image,
		Command:     svc.Command,
		WorkingDir:  svc.WorkingDir,
		Environment: make(map[string]string),
	}

	for k, v := range svc.Environment {
		if v != nil {
			service.Environment[k] = *v
		}
	}

	for _, v := range svc.Volumes {
		mount := VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		}
		switch v.Type {
		case "bind":
			mount.Type = VolumeMountTypeBind
		case "volume":
			mount.Type = VolumeMountTypeVolume
		case "tmpfs":
			mount.Type = VolumeMountTypeTmpfs
		default:
			if strings.HasPrefix(v.Source, ".") || strings.HasPrefix(v.Source, "/") || strings.HasPrefix(v.Source, "~") {
				mount.Type = VolumeMountTypeBind
			} else {
				mount.Type = VolumeMountTypeVolume
			}
		}
		service.Volumes = append(service.Volumes, mount)
	}

	for _, p := range svc.Ports {
		var published uint32
		if p.Published != "" {
			if pub, err := strconv.ParseUint(p.Published, 10, 32); err == nil {
				published = uint32(pub)
			}
		}
		service.Ports = append(service.Ports, Port{
			Target:    p.Target,
			Published: published,
			Protocol:  p.Protocol,
			HostIP:    p.HostIP,
		})
	}

	return service, nil
}

// =============================================================================
// Validation
// =============================================================================

var (
	imageVariableRegex = regexp.MustCompile(`\$\{([a-zA-Z0-9_\-:]+)\}`)
	imageDefaultRegex  = regexp.MustCompile(`[a-zA-Z0-9_\-]+:-[a-zA-Z0-9_\-]+`)
)

// validateImages checks image placeholders in the raw, uninterpolated file.
func validateImages(dict map[string]interface{}) error {
	services, ok := dict["services"].(map[string]interface{})
	if !ok {
		return ErrNoServices
	}

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		config, ok := services[name].(map[string]interface{})
		if !ok {
			return NewParseError("services."+name, "unable to read service config", ErrInvalidYAML)
		}
		image, ok := config["image"].(string)
		if !ok {
			return NewParseError("services."+name+".image", "service must have an image", ErrServiceNoImage)
		}
		if err := ValidateImage(image); err != nil {
			return NewParseError("services."+name+".image", err.Error(), ErrImageNoDefault)
		}
	}
	return nil
}

// ValidateImage checks that every ${VAR} in an image name has a default.
func ValidateImage(name string) error {
	for _, match := range imageVariableRegex.FindAllStringSubmatch(name, -1) {
		if !imageDefaultRegex.MatchString(match[1]) {
			return fmt.Errorf("missing a default variable in image name definition %s", name)
		}
	}
	return nil
}

// validateVolumes keeps mounts inside the service folder.
func validateVolumes(svc Service) error {
	for i, vol := range svc.Volumes {
		field := fmt.Sprintf("services.%s.volumes[%d]", svc.Name, i)
		if vol.Type != VolumeMountTypeBind {
			return NewParseError(field, fmt.Sprintf("found mount of type %s in service %s", vol.Type, svc.Name), ErrVolumeNotBind)
		}
		if !strings.HasPrefix(vol.Source, "./") {
			return NewParseError(field, fmt.Sprintf("found a none relative mount %s in service %s", vol.Source, svc.Name), ErrVolumeNotRelative)
		}
		if strings.Contains(vol.Source, "..") {
			return NewParseError(field, fmt.Sprintf("found a path trying to access a parent directory %s in service %s", vol.Source, svc.Name), ErrVolumeParentPath)
		}
		if len(strings.Split(vol.Source, "/")) > VolumeMaxDepth {
			return NewParseError(field, fmt.Sprintf("path %s is too deep (> %d)", vol.Source, VolumeMaxDepth), ErrVolumeTooDeep)
		}
	}
	return nil
}

// validatePorts validates port configurations
func validatePorts(svc Service) error {
	for i, port := range svc.Ports {
		field := fmt.Sprintf("services.%s.ports[%d]", svc.Name, i)
		if port.Target == 0 {
			return NewParseError(field, "target port cannot be 0", ErrServiceInvalidPort)
		}
		if port.Target > 65535 || port.Published > 65535 {
			return NewParseError(field, "port must be <= 65535", ErrServiceInvalidPort)
		}
	}
	return nil
}

// =============================================================================
// Variable Extraction
// =============================================================================

// variablePlaceholderRegex matches ${VAR_NAME} or ${VAR_NAME:-default}
var variablePlaceholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-[^}]*)?\}`)

// ExtractVariables extracts environment variable placeholders from raw YAML
// content, before compose-go interpolates them.
// Returns unique variable names without the ${} wrapper.
func ExtractVariables(yamlContent string) []string {
	seen := make(map[string]bool)
	var vars []string

	for _, match := range variablePlaceholderRegex.FindAllStringSubmatch(yamlContent, -1) {
		name := match[1]
		if !seen[name] {
			seen[name] = true
			vars = append(vars, name)
		}
	}
	return vars
}
