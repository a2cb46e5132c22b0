package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keyfob-io/keyfob/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and verify the audit log",
	Long: `Inspect and verify the tamper-evident audit log.

Every key operation appends one JSONL event, SHA-256 chained to its
predecessor. Keys appear only as fingerprints; the log never holds key
bytes. Editing, deleting, or reordering a line breaks the chain from
that point on, which "audit verify" reports.

Examples:
  keyfob audit verify --log /var/log/keyfob/audit.jsonl
  keyfob audit tail --log /var/log/keyfob/audit.jsonl -n 20`,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Replay the hash chain and report the first defect",
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the most recent audit events",
	RunE:  runAuditTail,
}

var (
	auditLog       string
	auditTailCount int
	auditTailJSON  bool
)

func init() {
	auditVerifyCmd.Flags().StringVar(&auditLog, "log", "", "Audit log to verify (required)")
	_ = auditVerifyCmd.MarkFlagRequired("log")

	auditTailCmd.Flags().StringVar(&auditLog, "log", "", "Audit log to read (required)")
	_ = auditTailCmd.MarkFlagRequired("log")
	auditTailCmd.Flags().IntVarP(&auditTailCount, "num", "n", 10, "Number of events to show")
	auditTailCmd.Flags().BoolVar(&auditTailJSON, "json", false, "Print events as JSON")

	auditCmd.AddCommand(auditVerifyCmd, auditTailCmd)
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	count, err := audit.VerifyChain(auditLog)
	if err != nil {
		fmt.Printf("VERIFICATION FAILED: %s\n", auditLog)
		fmt.Printf("  events intact before defect: %d\n", count)
		fmt.Printf("  defect: %s\n", err)
		return fmt.Errorf("verify %s: %w", auditLog, err)
	}

	fmt.Printf("VERIFICATION PASSED: %s\n", auditLog)
	fmt.Printf("  events: %d, chain intact\n", count)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	events, err := audit.ReadEvents(auditLog)
	if err != nil {
		return fmt.Errorf("read %s: %w", auditLog, err)
	}
	if len(events) == 0 {
		fmt.Println("No audit events.")
		return nil
	}
	if len(events) > auditTailCount {
		events = events[len(events)-auditTailCount:]
	}

	if auditTailJSON {
		out, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	for _, e := range events {
		printEvent(e)
	}
	return nil
}

// printEvent renders one event as a header line plus a key=value detail
// line. Unset fields are skipped.
func printEvent(e *audit.Event) {
	verdict := "ok"
	if e.Result == audit.ResultFailure {
		verdict = "FAILED"
	}
	fmt.Printf("%s  %s  [%s]\n", e.Timestamp, e.EventType, verdict)

	var fields []string
	add := func(key, val string) {
		if val != "" {
			fields = append(fields, key+"="+val)
		}
	}
	add("actor", e.Actor.ID+"@"+e.Actor.Host)
	add("object", e.Object.Type)
	add("fingerprint", e.Object.Fingerprint)
	if e.Object.Comment != "" {
		fields = append(fields, fmt.Sprintf("comment=%q", e.Object.Comment))
	}
	add("path", e.Object.Path)
	add("algorithm", e.Context.Algorithm)
	add("format", e.Context.Format)
	add("namespace", e.Context.Namespace)
	add("source", e.Context.Source)
	if e.Context.Handle != 0 {
		fields = append(fields, fmt.Sprintf("handle=%d", e.Context.Handle))
	}
	if e.Context.Keys != 0 {
		fields = append(fields, fmt.Sprintf("keys=%d", e.Context.Keys))
	}
	if e.EventType == audit.EventSignatureVerified {
		fields = append(fields, fmt.Sprintf("verified=%t", e.Context.Verified))
	}
	add("addr", e.Context.Addr)
	add("version", e.Context.Version)
	add("reason", e.Context.Reason)

	fmt.Printf("    %s\n\n", strings.Join(fields, " "))
}
