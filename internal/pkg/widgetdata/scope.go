package widgetdata

import (
	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/repositories/database"
)

//Scope is the device matching restriction for one request. The caller's company
//always applies. A non-nil NodeIDs restricts to devices assigned to one of the
//nodes; a non-nil DeviceID restricts to that single device id, even when no
//device carries it. At most one of the two is ever set.
type Scope struct {
	CompanyID uint
	NodeIDs   []uint
	DeviceID  *uint
}

//BuildScope derives the scope from the optional hierarchy and device selectors.
//When both selectors are supplied the hierarchy takes precedence and the device id
//is ignored; widget links may carry a stale device selection next to a hierarchy
//selection and the hierarchy is what the user navigated to. A hierarchy id that
//matches no node produces a scope that matches no device, not an error. A device
//outside the caller's company never matches, the company restriction makes a
//cross tenant device id come back empty.
func BuildScope(db database.Datastore, companyID uint, hierarchyID *int64, deviceID *uint) (Scope, error) {
	scope := Scope{CompanyID: companyID}

	if hierarchyID != nil {
		nodeIDs, err := db.GetHierarchySubtree(*hierarchyID)
		if err != nil {
			return scope, err
		}

		scope.NodeIDs = nodeIDs
		return scope, nil
	}

	if deviceID != nil {
		scope.DeviceID = deviceID
	}

	return scope, nil
}
