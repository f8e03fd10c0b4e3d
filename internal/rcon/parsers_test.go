package rcon

import "testing"

func TestParseServerInfoExtractsQuotedFields(t *testing.T) {
	body := `ServerName_s="My Squad Server", MapName_s="Narva_Invasion_v1", PlayerCount_I="42", MaxPlayers_I="100"`
	info := ParseServerInfo(body)

	cases := map[string]string{
		"ServerName_s": "My Squad Server",
		"MapName_s":    "Narva_Invasion_v1",
		"PlayerCount_I": "42",
		"MaxPlayers_I": "100",
	}
	for key, want := range cases {
		if got := info.Fields[key]; got != want {
			t.Errorf("field %q: got %q, want %q", key, got, want)
		}
	}
}

func TestParseServerInfoSkipsUnquotedGarbage(t *testing.T) {
	info := ParseServerInfo(`not a key=value body at all`)
	if len(info.Fields) != 0 {
		t.Errorf("expected no fields parsed, got %+v", info.Fields)
	}
}

func TestParseListPlayersSplitsActiveAndDisconnected(t *testing.T) {
	body := "ID: 0 | Online IDs: EOS: 0002a1b2c3d4e5f60718293a4b5c6d7e steam: 76561198000000000 | Name: Alice | Team ID: 1 | Squad ID: N/A | Is Leader: False | Role: \n" +
		"----- Recently Disconnected Players [Max of 15] -----\n" +
		"ID: 1 | Online IDs: EOS: 0002a1b2c3d4e5f60718293a4b5c6d7f steam: 76561198000000001 | Since Disconnect: 10s | Name: Bob"

	resp := ParseListPlayers(body)
	if len(resp.Players) != 1 || resp.Players[0].Name != "Alice" {
		t.Fatalf("unexpected players: %+v", resp.Players)
	}
	if len(resp.Disconnected) != 1 || resp.Disconnected[0].Name != "Bob" {
		t.Fatalf("unexpected disconnected: %+v", resp.Disconnected)
	}
}
