// Package collab coordinates one user's participation in a shared impact board.
//
// A Coordinator joins the board's room on a channel, keeps the local picture of who else
// is present, which field each of them is editing and where their cursor is, applies
// remote field updates, and persists local edits to the Document Store through a
// per-field debounce. Finalizing a board is a one-way gate: once finalized, every local
// mutation is rejected and remote updates are ignored.
//
// The coordinator is the only writer of its state. Local calls and channel handlers are
// serialized by a mutex, so a Coordinator may be driven from any goroutine.
//
//	coord := collab.New(collab.Config{
//		Channel:  ch,
//		Store:    store,
//		Identity: identity,
//	})
//	if err := coord.Join(ctx, driveID); err != nil {
//		return err
//	}
//	defer coord.Leave(ctx)
//
//	_ = coord.OnFieldFocus("summary", 0)
//	_ = coord.OnFieldChange("summary", "We collected 40kg", 17)
package collab
