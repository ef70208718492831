// Package core imports delimited text files into the page store.
//
// It holds the import pipeline and no transport code, so the HTTP server,
// the CLI and tests drive it the same way.
//
// # Pipeline
//
// One run reads a file row by row and turns each data row into at most one
// page under a fixed parent:
//
//  1. [Reader] decodes the stream (BOM stripped, invalid UTF-8 replaced) and
//     yields non-blank rows. The first one is the header.
//  2. [Bind] maps header columns to importable template fields, honouring
//     explicit column overrides.
//  3. [Coercer] converts each bound cell. Titles also yield the page name,
//     file columns are deferred, page references are resolved.
//  4. [Decide] applies the [DuplicatePolicy] when a page with the same name
//     already exists: skip it, create it under a [UniqueName], or [Merge]
//     the row into it.
//  5. The page is saved; deferred file values are attached with a second save.
//
// Problems with a single row never stop the run. They are reported as a
// [RowOutcome] in the [RunResult]. Only configuration errors and an
// unreadable source are returned as errors from [Importer.Run].
//
// # Background runs
//
// [Service] runs imports asynchronously behind an [ImportLimiter], serializes
// runs that target the same parent page, and publishes [ImportProgress]
// snapshots to subscribers:
//
//	runID, err := svc.StartImport(ctx, core.ImportRequest{
//	    FileName: "products.csv",
//	    Source:   f,
//	    Config:   cfg,
//	})
//	updates, _ := svc.SubscribeProgress(runID)
//	for p := range updates {
//	    fmt.Println(p.Phase, p.Rows)
//	}
//
// # Errors
//
// [MapError] turns any error into a [UserMessage] with a stable code
// (ROW001, VAL001, FILE003, ...) used in row outcomes and API responses.
package core
