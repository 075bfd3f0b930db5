package rbac

import (
	"github.com/medrex/hms-access/pkg/rbac"
)

func perm(category, action string) rbac.Permission {
	return rbac.NewPermission(category, action)
}

func all(category string) rbac.Permission {
	return rbac.NewPermission(category, rbac.Wildcard)
}

// DefaultCatalogSpec returns the built-in role/permission/hierarchy tables.
// Each call returns a fresh copy; callers may adjust it before NewCatalog.
func DefaultCatalogSpec() CatalogSpec {
	return CatalogSpec{
		Capabilities: []rbac.Permission{
			perm(rbac.CategoryUser, rbac.ActionCreate),
			perm(rbac.CategoryUser, rbac.ActionRead),
			perm(rbac.CategoryUser, rbac.ActionUpdate),
			perm(rbac.CategoryUser, rbac.ActionDelete),
			perm(rbac.CategoryRole, rbac.ActionRead),
			perm(rbac.CategoryRole, rbac.ActionUpdate),
			perm(rbac.CategorySettings, rbac.ActionRead),
			perm(rbac.CategorySettings, rbac.ActionUpdate),
			perm(rbac.CategoryAudit, rbac.ActionRead),
			perm(rbac.CategoryAudit, rbac.ActionExport),
			perm(rbac.CategoryAudit, rbac.ActionDelete),
			perm(rbac.CategoryReport, rbac.ActionRead),
			perm(rbac.CategoryReport, rbac.ActionExport),
			perm(rbac.CategoryAppointment, rbac.ActionDelete),
			perm(rbac.CategoryBilling, rbac.ActionUpdate),
			perm(rbac.CategoryBilling, rbac.ActionDelete),
			perm(rbac.CategoryLab, rbac.ActionCreate),
			perm(rbac.CategoryLab, rbac.ActionUpdate),
			perm(rbac.CategoryLab, rbac.ActionWrite),
			perm(rbac.CategoryMedication, rbac.ActionRead),
			perm(rbac.CategoryMedication, rbac.ActionDispense),
			perm(rbac.CategoryInventory, rbac.ActionRead),
			perm(rbac.CategoryInventory, rbac.ActionUpdate),
			perm(rbac.CategoryMessage, rbac.ActionDelete),
		},
		RolePermissions: map[rbac.Role][]rbac.Permission{
			rbac.RoleAdministrator: {
				all(rbac.CategoryUser),
				all(rbac.CategoryRole),
				all(rbac.CategorySettings),
				all(rbac.CategoryReport),
				all(rbac.CategoryAppointment),
				all(rbac.CategoryBilling),
				all(rbac.CategoryMessage),
				perm(rbac.CategoryAudit, rbac.ActionRead),
				perm(rbac.CategoryAudit, rbac.ActionExport),
				perm(rbac.CategoryPatient, rbac.ActionRead),
				perm(rbac.CategoryInventory, rbac.ActionRead),
			},
			rbac.RolePhysician: {
				perm(rbac.CategoryPatient, rbac.ActionRead),
				perm(rbac.CategoryPatient, rbac.ActionUpdate),
				perm(rbac.CategoryRecord, rbac.ActionRead),
				perm(rbac.CategoryRecord, rbac.ActionWrite),
				perm(rbac.CategoryVitals, rbac.ActionRead),
				perm(rbac.CategoryPrescription, rbac.ActionCreate),
				perm(rbac.CategoryPrescription, rbac.ActionRead),
				perm(rbac.CategoryPrescription, rbac.ActionUpdate),
				perm(rbac.CategoryLab, rbac.ActionOrder),
				perm(rbac.CategoryLab, rbac.ActionRead),
				perm(rbac.CategoryAppointment, rbac.ActionRead),
				perm(rbac.CategoryAppointment, rbac.ActionUpdate),
				perm(rbac.CategoryReport, rbac.ActionRead),
				all(rbac.CategoryMessage),
			},
			rbac.RoleNurse: {
				perm(rbac.CategoryPatient, rbac.ActionRead),
				perm(rbac.CategoryRecord, rbac.ActionRead),
				perm(rbac.CategoryVitals, rbac.ActionRead),
				perm(rbac.CategoryVitals, rbac.ActionWrite),
				perm(rbac.CategoryMedication, rbac.ActionAdminister),
				perm(rbac.CategoryPrescription, rbac.ActionRead),
				perm(rbac.CategoryLab, rbac.ActionRead),
				perm(rbac.CategoryAppointment, rbac.ActionRead),
				all(rbac.CategoryMessage),
			},
			rbac.RoleReceptionist: {
				perm(rbac.CategoryPatient, rbac.ActionCreate),
				perm(rbac.CategoryPatient, rbac.ActionRead),
				perm(rbac.CategoryPatient, rbac.ActionUpdate),
				all(rbac.CategoryAppointment),
				perm(rbac.CategoryBilling, rbac.ActionRead),
				perm(rbac.CategoryBilling, rbac.ActionCreate),
				perm(rbac.CategoryBilling, rbac.ActionProcess),
				perm(rbac.CategoryMessage, rbac.ActionRead),
				perm(rbac.CategoryMessage, rbac.ActionSend),
			},
			rbac.RolePharmacist: {
				perm(rbac.CategoryPatient, rbac.ActionRead),
				perm(rbac.CategoryPrescription, rbac.ActionRead),
				perm(rbac.CategoryPrescription, rbac.ActionDispense),
				all(rbac.CategoryMedication),
				all(rbac.CategoryInventory),
				perm(rbac.CategoryMessage, rbac.ActionRead),
				perm(rbac.CategoryMessage, rbac.ActionSend),
			},
			rbac.RoleLabTechnician: {
				perm(rbac.CategoryPatient, rbac.ActionRead),
				all(rbac.CategoryLab),
				perm(rbac.CategoryMessage, rbac.ActionRead),
				perm(rbac.CategoryMessage, rbac.ActionSend),
			},
			rbac.RolePatient: {
				perm(rbac.CategoryAppointment, rbac.ActionRead),
				perm(rbac.CategoryAppointment, rbac.ActionCreate),
				perm(rbac.CategoryAppointment, rbac.ActionCancel),
				perm(rbac.CategoryBilling, rbac.ActionRead),
				perm(rbac.CategoryBilling, rbac.ActionPay),
				perm(rbac.CategoryMessage, rbac.ActionRead),
				perm(rbac.CategoryMessage, rbac.ActionSend),
			},
		},
		RoleLevels: map[rbac.Role]int{
			rbac.RoleAdministrator: 80,
			rbac.RolePhysician:     70,
			rbac.RolePharmacist:    60,
			rbac.RoleNurse:         50,
			rbac.RoleLabTechnician: 50,
			rbac.RoleReceptionist:  40,
			rbac.RolePatient:       10,
		},
		AdminRoles:        []rbac.Role{rbac.RoleAdministrator},
		HospitalWideRoles: []rbac.Role{rbac.RoleAdministrator},
		ManagementOverrides: []rbac.ManagementRule{
			// pharmacy answers to its own chain, not to prescribers
			{Manager: rbac.RolePhysician, Target: rbac.RolePharmacist, Allow: false},
			{Manager: rbac.RoleNurse, Target: rbac.RoleReceptionist, Allow: false},
		},
		HardDeny: []rbac.Permission{
			perm(rbac.CategoryAudit, rbac.ActionDelete),
		},
		EmergencyRoles: []rbac.Role{rbac.RolePhysician, rbac.RoleNurse},
		EmergencyPermissions: []rbac.Permission{
			perm(rbac.CategoryPatient, rbac.ActionRead),
			perm(rbac.CategoryRecord, rbac.ActionRead),
			perm(rbac.CategoryVitals, rbac.ActionRead),
			perm(rbac.CategoryLab, rbac.ActionRead),
			perm(rbac.CategoryPrescription, rbac.ActionRead),
			perm(rbac.CategoryMedication, rbac.ActionAdminister),
		},
		ContextConstraints: []rbac.ContextConstraint{
			{
				Category:       rbac.CategoryUser,
				AllowedDevices: []string{"desktop"},
			},
			{
				Category:       rbac.CategoryRole,
				AllowedDevices: []string{"desktop"},
			},
			{
				Category:       rbac.CategorySettings,
				AllowedDevices: []string{"desktop"},
			},
			{
				Category:         rbac.CategoryBilling,
				Roles:            []rbac.Role{rbac.RoleReceptionist},
				AllowedLocations: []string{"onsite"},
			},
		},
	}
}
