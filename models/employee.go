package models

import "time"

type Employee struct {
	ID          uint       `gorm:"primary_key" json:"id"`
	PersonId    *string    `gorm:"size:64;uniqueIndex;not null" json:"person_id"`
	FirstName   *string    `gorm:"size:255" json:"first_name"`
	LastName    *string    `gorm:"size:255" json:"last_name"`
	WorkMobile  *string    `gorm:"size:64" json:"work_mobile"`
	WorkPhone   *string    `gorm:"size:64" json:"work_phone"`
	WorkTitle   *string    `gorm:"size:255" json:"work_title"`
	OrgId       *string    `gorm:"size:64;index" json:"org_id"`
	Email       *string    `gorm:"size:255" json:"email"`
	ManagerId   *string    `gorm:"size:64" json:"manager_id"`
	ManagerCode *string    `gorm:"size:64" json:"manager_code"`
	Active      bool       `gorm:"column:active_employee;not null;default:false;index" json:"active_employee"`
	UpdatedAt   *time.Time `gorm:"autoUpdateTime:false;index" json:"updated_at"`
}

func (Employee) TableName() string { return "employee" }

func (e Employee) values() []any {
	return []any{e.PersonId, e.FirstName, e.LastName, e.WorkMobile, e.WorkPhone, e.WorkTitle,
		e.OrgId, e.Email, e.ManagerId, e.ManagerCode, e.Active}
}
