package tenant

import "time"

// Tenant is a row of the system `websites` table.
//
// The core only reads a Tenant. The allocation columns (StoredInDatabase,
// TenantPrefix, TheKey) are written back through Repository.SaveAssignment
// after the allocator picked a shared database for the tenant.
type Tenant struct {
	ID   int    `gorm:"primaryKey" json:"id"`
	UUID string `gorm:"column:uuid;size:191;uniqueIndex" json:"uuid"`

	// ManagedByDatabaseConnection references a connection template name; nil
	// means the system connection manages this tenant.
	ManagedByDatabaseConnection *string `gorm:"column:managed_by_database_connection" json:"managed_by_database_connection,omitempty"`

	StoredInDatabase string `gorm:"column:stored_in_database" json:"stored_in_database"`
	TheKey           string `gorm:"column:the_key" json:"-"`
	TenantPrefix     int    `gorm:"column:tenant_prefix" json:"tenant_prefix"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Tenant) TableName() string {
	return "websites"
}

// ManagedBy returns the managing connection name, or "" when unset.
func (t *Tenant) ManagedBy() string {
	if t == nil || t.ManagedByDatabaseConnection == nil {
		return ""
	}
	return *t.ManagedByDatabaseConnection
}

// IsAllocated reports whether the tenant already owns a shared database slot.
func (t *Tenant) IsAllocated() bool {
	return t != nil && t.StoredInDatabase != ""
}

// WithAssignment returns a copy of t with the assignment applied.
func (t Tenant) WithAssignment(a Assignment) *Tenant {
	t.StoredInDatabase = a.Database
	t.TenantPrefix = a.Prefix
	if a.TheKey != "" {
		t.TheKey = a.TheKey
	}
	return &t
}

// Hostname maps a fully qualified domain name onto a tenant.
type Hostname struct {
	ID        int    `gorm:"primaryKey" json:"id"`
	FQDN      string `gorm:"column:fqdn;size:191;uniqueIndex" json:"fqdn"`
	WebsiteID *int   `gorm:"column:website_id" json:"website_id,omitempty"`
}

func (Hostname) TableName() string {
	return "hostnames"
}

// Assignment is the placement the allocator computed for a tenant in
// separate-database mode.
type Assignment struct {
	Database string `json:"stored_in_database"`
	Prefix   int    `json:"tenant_prefix"`
	TheKey   string `json:"-"`
}
