package models

// SentinelOrgId is the org_id every dangling employee reference is rewritten to.
const SentinelOrgId = "UNKNOWN"

type Organization struct {
	ID          uint    `gorm:"primary_key" json:"id"`
	CompanyId   *string `gorm:"size:32" json:"company_id"`
	OrgId       *string `gorm:"size:64;uniqueIndex;not null" json:"org_id"`
	OrgName     *string `gorm:"size:255" json:"org_name"`
	ParentOrgId *string `gorm:"size:64" json:"parent_org_id"`
	TreeLevel   *string `gorm:"size:16" json:"tree_level"`
}

func (Organization) TableName() string { return "organization" }

// SentinelOrganization is the synthetic "UNKNOWN" unit written at the end of every
// organization run that processed at least one row.
func SentinelOrganization() Organization {
	return Organization{
		CompanyId:   strPtr("1"),
		OrgId:       strPtr(SentinelOrgId),
		OrgName:     strPtr("Övriga personer"),
		ParentOrgId: strPtr("13"),
		TreeLevel:   strPtr("2"),
	}
}

func (o Organization) values() []any {
	return []any{o.CompanyId, o.OrgId, o.OrgName, o.ParentOrgId, o.TreeLevel}
}

func strPtr(s string) *string { return &s }
