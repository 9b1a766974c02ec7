// Package logtail reads the tail of roomboard's JSON log for the activity
// pane.
//
// Read uses a ring buffer so only the last maxLines are held in memory,
// whatever the file size. A missing file yields no lines rather than an
// error, since the log may not exist before the first write.
//
// Parse decodes one zap JSON line into an Entry, keeping the fields the
// activity pane shows (room_id, status, error). Lines that are not JSON
// are kept verbatim in Entry.Raw.
//
//	entries, err := logtail.ReadEntries(cfg.LogFile, 200)
//	if err != nil {
//		return err
//	}
//	for _, e := range entries {
//		fmt.Println(e.String())
//	}
package logtail
