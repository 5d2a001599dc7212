// The [impactboard] package connects a participant to a collaborative Impact Board.
//
// An Impact Board is a shared, structured document attached to a completed drive. Several
// participants edit its fields at the same time; each sees who else is present, which field
// someone is editing, and where their cursor is. The drive's creator finalizes the board,
// after which it is read-only and carries a generated summary.
//
// # Sessions
//
// [Open] acquires everything one participant needs for one board: the Document Store client,
// the reconnecting channel connection and the coordinator. It fails before touching the
// network when the credential is missing or expired. [Session.Close] releases them in order.
//
//	cfg := impactboard.NewConfig()
//	cfg.APIURL = "http://localhost:8080"
//	cfg.Token = token
//
//	s, err := impactboard.Open(ctx, cfg, driveID)
//	if err != nil {
//		return err
//	}
//	defer s.Close(context.Background())
//
//	if err := s.OnFieldFocus("summary", 0); err != nil {
//		return err
//	}
//	if err := s.OnFieldChange("summary", "We collected 40kg", 17); err != nil {
//		return err
//	}
//
// Local edits apply immediately and are persisted per field after a quiet period
// ([Config.DebounceWindow]). Remote events are applied as they arrive; see
// [github.com/greendrive/impactboard/pkg/collab] for the rules.
//
// # Reconnection
//
// The channel runs on [github.com/greendrive/impactboard/pkg/channel/rews], which replaces a
// dropped socket and re-registers every handler on it. After a reconnect the coordinator
// reloads the snapshot and re-announces itself, so presence is rebuilt from the server.
//
// # Configuration
//
// [Config] is read from defaults, an optional YAML file ([LoadConfigFile]) and the
// environment ([Config.ApplyEnv], variables prefixed with IMPACTBOARD_), in that order.
package impactboard
