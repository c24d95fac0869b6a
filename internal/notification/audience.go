package notification

import "CampusNotify/internal/auth"

// DefaultTarget infers an audience for authors who supplied none. Staff with
// no department scope (dean, subDean, admin) broadcast to every student;
// every other staff sender defaults to students only, later narrowed to their
// own department by Resolve.
func DefaultTarget(senderRole string) Target {
	switch senderRole {
	case auth.RoleDean, auth.RoleSubDean, auth.RoleAdmin:
		return Target{All: true, StudentsOnly: true}
	default:
		return Target{StudentsOnly: true}
	}
}

// ApplyLevelAdviserDefault fills in the adviser's own level when they target
// no levels explicitly.
func ApplyLevelAdviserDefault(t *Target, senderRole string, senderLevel int) {
	if senderRole == auth.RoleLevelAdviser && len(t.Levels) == 0 && auth.ValidLevels[senderLevel] {
		t.Levels = []int{senderLevel}
	}
}

// Resolve turns a target plus sender identity into a concrete recipient
// filter. Precedence, in order:
//
//  1. only active users are ever recipients
//  2. explicit roles beat the studentsOnly/staffOnly flags; each flag applies
//     only when the other is unset
//  3. an "all" broadcast skips department and level narrowing entirely
//  4. explicit departments beat the sender's own department, which is used
//     only for department-scoped sender roles
//  5. explicit levels narrow last
//
// Resolve never fails; an empty match is a valid result.
func Resolve(sender *auth.User, senderRole string, t Target) auth.Filter {
	f := auth.Filter{ActiveOnly: true}

	if len(t.Roles) > 0 {
		f.Roles = append([]string(nil), t.Roles...)
	} else if t.StudentsOnly && !t.StaffOnly {
		f.Roles = []string{auth.RoleStudent}
	} else if t.StaffOnly && !t.StudentsOnly {
		f.Roles = append([]string(nil), auth.StaffRoles...)
	}

	if t.All {
		return f
	}

	if len(t.Departments) > 0 {
		f.Departments = append([]string(nil), t.Departments...)
	} else if sender != nil && auth.DepartmentScopedRoles[senderRole] && sender.Department != "" {
		f.Departments = []string{auth.NormalizeDepartment(sender.Department)}
	}

	if len(t.Levels) > 0 {
		f.Levels = append([]int(nil), t.Levels...)
	}

	return f
}
