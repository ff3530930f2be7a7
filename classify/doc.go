// Package classify interprets the unstructured text a vault CLI writes to
// its terminal.
//
// The CLI never frames its responses. It prints banners, sync progress,
// warnings, JSON payloads and finally a prompt, all on one merged stream.
// A Classifier answers three questions about a chunk of that stream:
//
//   - IsReady: has the CLI finished starting and authenticating?
//   - IsComplete: has the last command finished (a prompt sits at the tail)?
//   - HasRealError: does the text contain a genuine failure once benign
//     banners have been removed?
//
// Every recognized string lives in a single Table of markers, each tagged
// with a Meaning. Tables can be loaded from YAML or TOML with LoadTable and
// swapped at runtime with SetTable or Watch.
//
// Example:
//
//	c, err := classify.New(classify.DefaultTable())
//	if err != nil {
//	    return err
//	}
//	if c.IsComplete(out) && !c.HasRealError(out) {
//	    fmt.Println(c.Response(out, "list --format=json"))
//	}
package classify
