package protocol

import "sort"

// Gateway command ids.
const (
	CmdPing     uint16 = 0x0001
	CmdVoidPing uint16 = 0x0002

	CmdACLSetVisibility uint16 = 0x0101
	CmdACLGrant         uint16 = 0x0102
	CmdACLRevoke        uint16 = 0x0103
	CmdACLRevokeAllUser uint16 = 0x0104
	CmdACLCheckBatch    uint16 = 0x0105
	CmdACLListGrants    uint16 = 0x0106
)

var commandNames = map[uint16]string{
	CmdPing:             "ping",
	CmdVoidPing:         "void-ping",
	CmdACLSetVisibility: "acl.set-visibility",
	CmdACLGrant:         "acl.grant",
	CmdACLRevoke:        "acl.revoke",
	CmdACLRevokeAllUser: "acl.revoke-all",
	CmdACLCheckBatch:    "acl.check-batch",
	CmdACLListGrants:    "acl.list-grants",
}

// CommandName returns the CLI name of cmd.
func CommandName(cmd uint16) (string, bool) {
	name, ok := commandNames[cmd]
	return name, ok
}

// CommandByName is the inverse of CommandName.
func CommandByName(name string) (uint16, bool) {
	for cmd, n := range commandNames {
		if n == name {
			return cmd, true
		}
	}
	return 0, false
}

// CommandNames lists the known command names in sorted order.
func CommandNames() []string {
	names := make([]string, 0, len(commandNames))
	for _, n := range commandNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
