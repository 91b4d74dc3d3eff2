package entities

// DefaultRelationshipTypes are seeded for a tenant by LoadDefaults.
var DefaultRelationshipTypes = []RelationshipType{
	{Name: "reports_to", Description: "Reporting line between people", Hierarchical: true},
	{Name: "parent_of", Description: "Organizational or ownership parent", Hierarchical: true},
	{Name: "manages", Description: "Management of a unit, account or asset", Hierarchical: true},
	{Name: "supplier_partnership", Description: "Vendor or supplier partnership"},
	{Name: "credit_link", Description: "Credit line or guarantee between parties"},
	{Name: "service_assignment", Description: "Staff assigned to a service or customer"},
	{Name: "related_to", Description: "Generic association", AllowSelfReference: true},
}

// IsDefaultType checks if a type name is one of the seeded defaults.
func IsDefaultType(name string) bool {
	for _, t := range DefaultRelationshipTypes {
		if t.Name == name {
			return true
		}
	}
	return false
}
