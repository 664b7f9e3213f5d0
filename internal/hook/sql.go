package hook

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const (
	DBMicroMsg  = "MicroMsg.db"
	DBMediaMsg0 = "MediaMSG0.db"

	contactColumns = "UserName,Alias,Type,NickName,Remark"
)

// QuoteSQL renders s as a single-quoted SQL string literal.
func QuoteSQL(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ContactList reads every contact row keyed by wxid.
func ContactList(ctx context.Context, c Client) (map[string]Contact, error) {
	handle, err := c.DBHandle(ctx, DBMicroMsg)
	if err != nil {
		return nil, err
	}
	rows, err := c.QueryDatabase(ctx, handle, "SELECT "+contactColumns+" FROM Contact")
	if err != nil {
		return nil, err
	}
	contacts := make(map[string]Contact, len(rows))
	for i, row := range rows {
		if i == 0 {
			continue
		}
		contact, ok := contactFromRow(row)
		if !ok {
			continue
		}
		contacts[contact.Wxid] = contact
	}
	return contacts, nil
}

// ContactByWxid looks up a single contact. ok is false when no row matches.
func ContactByWxid(ctx context.Context, c Client, wxid string) (Contact, bool, error) {
	handle, err := c.DBHandle(ctx, DBMicroMsg)
	if err != nil {
		return Contact{}, false, err
	}
	sql := "SELECT " + contactColumns + " FROM Contact WHERE UserName = " + QuoteSQL(wxid)
	rows, err := c.QueryDatabase(ctx, handle, sql)
	if err != nil {
		return Contact{}, false, err
	}
	if len(rows) < 2 {
		return Contact{}, false, nil
	}
	contact, ok := contactFromRow(rows[1])
	return contact, ok, nil
}

// GroupMembers reads all chatroom rosters as {chatroom: {wxid: display name}}.
func GroupMembers(ctx context.Context, c Client) (map[string]map[string]string, error) {
	handle, err := c.DBHandle(ctx, DBMicroMsg)
	if err != nil {
		return nil, err
	}
	rows, err := c.QueryDatabase(ctx, handle, "SELECT ChatRoomName,UserNameList,DisplayNameList FROM ChatRoom")
	if err != nil {
		return nil, err
	}
	groups := make(map[string]map[string]string, len(rows))
	for i, row := range rows {
		if i == 0 || len(row) < 3 || row[0] == "" {
			continue
		}
		ids := strings.Split(row[1], "^G")
		names := strings.Split(row[2], "^G")
		members := make(map[string]string, len(ids))
		for j, id := range ids {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			name := ""
			if j < len(names) {
				name = names[j]
			}
			members[id] = name
		}
		groups[row[0]] = members
	}
	return groups, nil
}

// VoiceBlob fetches the base64 voice payload for msgid from the media database.
// ok is false unless the result is exactly one data row.
func VoiceBlob(ctx context.Context, c Client, msgid string) (string, bool, error) {
	if _, err := strconv.ParseUint(msgid, 10, 64); err != nil {
		return "", false, fmt.Errorf("invalid msgid %q", msgid)
	}
	handle, err := c.DBHandle(ctx, DBMediaMsg0)
	if err != nil {
		return "", false, err
	}
	rows, err := c.QueryDatabase(ctx, handle, "SELECT Buf FROM Media WHERE Reserved0 = "+msgid)
	if err != nil {
		return "", false, err
	}
	if len(rows) != 2 || len(rows[1]) == 0 {
		return "", false, nil
	}
	return rows[1][0], true, nil
}

func contactFromRow(row []string) (Contact, bool) {
	if len(row) < 5 || row[0] == "" {
		return Contact{}, false
	}
	typ, _ := strconv.Atoi(row[2])
	return Contact{
		Wxid:     row[0],
		Alias:    row[1],
		Type:     typ,
		Nickname: row[3],
		Remark:   row[4],
	}, true
}
