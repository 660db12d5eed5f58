package importer

import "bitbucket.org/mmdatafocus/csvfilereader/models"

// Dataset names one of the two imported files.
type Dataset string

const (
	DatasetOrganization Dataset = models.ImportDatasetOrganization
	DatasetEmployee     Dataset = models.ImportDatasetEmployee
)

// Tag is the short log prefix used for the dataset.
func (d Dataset) Tag() string {
	switch d {
	case DatasetOrganization:
		return "[ORG]"
	case DatasetEmployee:
		return "[EMP]"
	default:
		return "[" + string(d) + "]"
	}
}

// Schema describes the layout of a delimited file: separator and the
// ordered header columns that must be present on the first line.
type Schema struct {
	Dataset   Dataset
	Delimiter rune
	Columns   []string
}

var OrganizationSchema = Schema{
	Dataset:   DatasetOrganization,
	Delimiter: ',',
	Columns:   []string{"CompanyId", "OrgId", "OrgName", "ParentId", "TreeLevel"},
}

var EmployeeSchema = Schema{
	Dataset:   DatasetEmployee,
	Delimiter: ';',
	Columns: []string{"PersonId", "Givenname", "Lastname", "WorkMobile", "WorkPhone", "Title",
		"OrgId", "PrimaryEMailAddress", "ManagerId", "ManagerCode"},
}

// Row is one decoded line, null-normalized, in schema column order.
type Row []*string

func organizationFromRow(r Row) models.Organization {
	return models.Organization{
		CompanyId:   r[0],
		OrgId:       r[1],
		OrgName:     r[2],
		ParentOrgId: r[3],
		TreeLevel:   r[4],
	}
}

func employeeFromRow(r Row) models.Employee {
	return models.Employee{
		PersonId:    r[0],
		FirstName:   r[1],
		LastName:    r[2],
		WorkMobile:  r[3],
		WorkPhone:   r[4],
		WorkTitle:   r[5],
		OrgId:       r[6],
		Email:       r[7],
		ManagerId:   r[8],
		ManagerCode: r[9],
	}
}
