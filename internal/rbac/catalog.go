package rbac

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// permissionNamespace seeds deterministic permission ids so every instance
// derives the same id for the same code.
var permissionNamespace = uuid.MustParse("6f2c1a8e-4b7d-5e3f-9a10-2c4d6e8f0a1b")

// WildcardPermission in a system role definition grants every catalog permission.
const WildcardPermission = "*"

// Catalog is the read-only permission registry.
type Catalog interface {
	ListCategories() []PermissionCategory
	GetPermission(code string) (Permission, error)
	PermissionByID(id string) (Permission, bool)
}

// SystemRoleDef describes a reserved role provisioned at startup.
type SystemRoleDef struct {
	Code          string        `yaml:"code"`
	Name          string        `yaml:"name"`
	Description   string        `yaml:"description"`
	Level         int           `yaml:"level"`
	ApprovalScope ApprovalScope `yaml:"approval_scope"`
	Permissions   []string      `yaml:"permissions"` // permission codes
}

type catalogFile struct {
	Categories []struct {
		Key         string `yaml:"key"`
		Name        string `yaml:"name"`
		Permissions []struct {
			Code string `yaml:"code"`
			Name string `yaml:"name"`
		} `yaml:"permissions"`
	} `yaml:"categories"`
	SystemRoles []SystemRoleDef `yaml:"system_roles"`
}

// MemoryCatalog is an immutable in-memory Catalog.
type MemoryCatalog struct {
	categories  []PermissionCategory
	byCode      map[string]Permission
	byID        map[string]Permission
	systemRoles []SystemRoleDef
}

// PermissionID derives the stable id of a permission code.
func PermissionID(code string) string {
	return uuid.NewSHA1(permissionNamespace, []byte(code)).String()
}

// NewCatalog builds a catalog from categories. Permissions without an id get
// the id derived from their code. Codes must be unique across categories.
func NewCatalog(categories []PermissionCategory, systemRoles ...SystemRoleDef) (*MemoryCatalog, error) {
	c := &MemoryCatalog{
		byCode: make(map[string]Permission),
		byID:   make(map[string]Permission),
	}
	for _, cat := range categories {
		if strings.TrimSpace(cat.Key) == "" {
			return nil, fmt.Errorf("permission category key is required")
		}
		out := PermissionCategory{Key: cat.Key, DisplayName: cat.DisplayName}
		for _, p := range cat.Permissions {
			if strings.TrimSpace(p.Code) == "" {
				return nil, fmt.Errorf("permission code is required in category %q", cat.Key)
			}
			if _, dup := c.byCode[p.Code]; dup {
				return nil, fmt.Errorf("duplicate permission code %q", p.Code)
			}
			if p.ID == "" {
				p.ID = PermissionID(p.Code)
			}
			p.Category = cat.Key
			c.byCode[p.Code] = p
			c.byID[p.ID] = p
			out.Permissions = append(out.Permissions, p)
		}
		c.categories = append(c.categories, out)
	}
	for _, def := range systemRoles {
		for _, code := range def.Permissions {
			if code == WildcardPermission {
				continue
			}
			if _, ok := c.byCode[code]; !ok {
				return nil, fmt.Errorf("system role %s references unknown permission %q", def.Code, code)
			}
		}
	}
	c.systemRoles = systemRoles
	return c, nil
}

// LoadCatalog reads a catalog YAML file. An empty path loads the built-in catalog.
func LoadCatalog(path string) (*MemoryCatalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes catalog YAML.
func ParseCatalog(data []byte) (*MemoryCatalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	categories := make([]PermissionCategory, 0, len(f.Categories))
	for _, cat := range f.Categories {
		pc := PermissionCategory{Key: cat.Key, DisplayName: cat.Name}
		for _, p := range cat.Permissions {
			pc.Permissions = append(pc.Permissions, Permission{Code: p.Code, Name: p.Name})
		}
		categories = append(categories, pc)
	}
	return NewCatalog(categories, f.SystemRoles...)
}

// ListCategories returns the categories in definition order.
func (c *MemoryCatalog) ListCategories() []PermissionCategory {
	out := make([]PermissionCategory, len(c.categories))
	for i, cat := range c.categories {
		out[i] = PermissionCategory{
			Key:         cat.Key,
			DisplayName: cat.DisplayName,
			Permissions: append([]Permission(nil), cat.Permissions...),
		}
	}
	return out
}

// GetPermission looks a permission up by code.
func (c *MemoryCatalog) GetPermission(code string) (Permission, error) {
	p, ok := c.byCode[code]
	if !ok {
		return Permission{}, WithField(ErrPermissionNotFound, "code", code)
	}
	return p, nil
}

// PermissionByID looks a permission up by id.
func (c *MemoryCatalog) PermissionByID(id string) (Permission, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// SystemRoles returns the reserved role definitions shipped with the catalog.
func (c *MemoryCatalog) SystemRoles() []SystemRoleDef {
	return append([]SystemRoleDef(nil), c.systemRoles...)
}

// ExpandCodes maps permission codes to ids. The wildcard expands to every
// permission in the catalog.
func (c *MemoryCatalog) ExpandCodes(codes []string) ([]string, error) {
	var ids []string
	for _, code := range codes {
		if code == WildcardPermission {
			for id := range c.byID {
				ids = append(ids, id)
			}
			continue
		}
		p, err := c.GetPermission(code)
		if err != nil {
			return nil, err
		}
		ids = append(ids, p.ID)
	}
	return NormalizePermissionIDs(ids), nil
}
