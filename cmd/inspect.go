package cmd

import (
	"fmt"

	"github.com/logv/kruda/internal/klog"
)

// RunInspectCmdLine prints the demo table's schema. There is nothing on
// disk for this engine to decode, so it builds the demo table in memory
// and prints its Describe() instead of a decoded header file.
func RunInspectCmdLine() {
	tbl, err := buildDemoTable()
	if err != nil {
		klog.Error("inspect: building table", err)
		return
	}

	d := tbl.Describe()
	fmt.Printf("row_count=%d row_length=%d row_step=%d layout=%d\n", d.RowCount, d.RowLength, d.RowStep, d.Layout)
	for _, c := range d.Columns {
		fmt.Printf("  %-12s type=%d field_length=%d field_offset=%d data_offset=%d\n", c.Name, c.TypeID, c.FieldLength, c.FieldOffset, c.DataOffset)
	}
}
