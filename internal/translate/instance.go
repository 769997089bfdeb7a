package translate

import (
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/me/dxcompiler/internal/config"
	"github.com/me/dxcompiler/internal/lang"
	"github.com/me/dxcompiler/pkg/ir"
)

// instanceType resolves a task's resource hints into an instance selection.
// A pinned instance name wins; otherwise all-constant hints resolve at
// compile time (unless the dynamic selection knob is set), any non-constant
// hint defers to the runtime, and no hints at all keep the platform default.
func (t *Translator) instanceType(task *lang.Task) (ir.InstanceType, error) {
	hints := task.Runtime
	attrs := t.runtimeAttrs(task.Name)

	if hints.InstanceName != nil {
		v, constant, err := t.oracle.TryConstEval(hints.InstanceName, ir.TString{})
		if err != nil {
			return nil, err
		}
		if !constant {
			return ir.DynamicInstance{}, nil
		}
		s, ok := v.(ir.VString)
		if !ok {
			return nil, ir.Errorf(ir.TypeError, "task %s: instance name must be a string", task.Name)
		}
		return ir.StaticInstance{Name: s.Value}, nil
	}
	if attrs.Instance != "" {
		return ir.StaticInstance{Name: attrs.Instance}, nil
	}

	req := ir.InstanceRequest{CPU: attrs.CPU}
	if attrs.Memory != "" {
		mb, err := parseMemoryMB(attrs.Memory)
		if err != nil {
			return nil, err
		}
		req.MemoryMB = mb
	}
	if attrs.Disk != "" {
		gb, err := parseDiskGB(attrs.Disk)
		if err != nil {
			return nil, err
		}
		req.DiskGB = gb
	}

	specified := false
	allConstant := true

	if hints.CPU != nil {
		specified = true
		v, constant, err := t.oracle.TryConstEval(hints.CPU, ir.TFloat{})
		if err != nil {
			return nil, err
		}
		if constant {
			switch n := v.(type) {
			case ir.VFloat:
				req.CPU = n.Value
			case ir.VInt:
				req.CPU = float64(n.Value)
			default:
				return nil, ir.Errorf(ir.TypeError, "task %s: cpu hint must be numeric", task.Name)
			}
		} else {
			allConstant = false
		}
	}
	if hints.Memory != nil {
		specified = true
		mb, constant, err := t.foldSizeHint(hints.Memory, parseMemoryMB)
		if err != nil {
			return nil, ir.WrapError(ir.TypeError, err, "task %s: memory hint", task.Name)
		}
		if constant {
			req.MemoryMB = mb
		} else {
			allConstant = false
		}
	}
	if hints.Disk != nil {
		specified = true
		gb, constant, err := t.foldSizeHint(hints.Disk, parseDiskGB)
		if err != nil {
			return nil, ir.WrapError(ir.TypeError, err, "task %s: disk hint", task.Name)
		}
		if constant {
			req.DiskGB = gb
		} else {
			allConstant = false
		}
	}

	if !specified && req == (ir.InstanceRequest{}) {
		return ir.DefaultInstance{}, nil
	}
	if !allConstant {
		return ir.DynamicInstance{}, nil
	}
	if t.opts.InstanceTypeSelection == config.SelectDynamic {
		return ir.DynamicInstance{}, nil
	}
	return ir.StaticInstance{Request: &req}, nil
}

// runtimeAttrs merges the global defaults with any per-task extras override.
func (t *Translator) runtimeAttrs(taskName string) config.RuntimeAttrs {
	attrs := t.opts.DefaultRuntimeAttrs
	if t.opts.Extras != nil {
		if t.opts.Extras.DefaultRuntimeAttrs != nil {
			attrs = mergeAttrs(attrs, *t.opts.Extras.DefaultRuntimeAttrs)
		}
		if per, ok := t.opts.Extras.PerTaskAttrs[taskName]; ok {
			attrs = mergeAttrs(attrs, per)
		}
	}
	return attrs
}

func mergeAttrs(base, over config.RuntimeAttrs) config.RuntimeAttrs {
	if over.CPU != 0 {
		base.CPU = over.CPU
	}
	if over.Memory != "" {
		base.Memory = over.Memory
	}
	if over.Disk != "" {
		base.Disk = over.Disk
	}
	if over.Docker != "" {
		base.Docker = over.Docker
	}
	if over.Instance != "" {
		base.Instance = over.Instance
	}
	return base
}

// foldSizeHint const-folds a size expression and parses it with the given
// unit parser. Numeric constants pass through the parser as plain numbers.
func (t *Translator) foldSizeHint(expr lang.Expr, parse func(string) (int64, error)) (int64, bool, error) {
	v, constant, err := t.oracle.TryConstEval(expr, ir.TString{})
	if err != nil || !constant {
		return 0, false, err
	}
	switch n := v.(type) {
	case ir.VString:
		size, err := parse(n.Value)
		return size, true, err
	case ir.VInt:
		size, err := parse(strconv.FormatInt(n.Value, 10))
		return size, true, err
	case ir.VFloat:
		size, err := parse(strconv.FormatFloat(n.Value, 'f', -1, 64))
		return size, true, err
	default:
		return 0, false, ir.Errorf(ir.TypeError, "size hint must be a string or number")
	}
}

// parseMemoryMB converts a memory hint such as "2 GiB" or "2048" (MiB) into
// mebibytes.
func parseMemoryMB(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		// Bare numbers are already mebibytes.
		return int64(n), nil
	}
	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, ir.Errorf(ir.TypeError, "cannot parse memory hint %q", s)
	}
	return int64(bytes / humanize.MiByte), nil
}

// parseDiskGB converts a disk hint such as "local-disk 20 HDD", "20 GB", or
// "20" into gibibytes.
func parseDiskGB(s string) (int64, error) {
	s = strings.TrimSpace(s)
	// WDL-style "local-disk <n> (HDD|SSD)".
	if strings.HasPrefix(s, "local-disk") {
		fields := strings.Fields(s)
		if len(fields) >= 2 {
			if n, err := strconv.ParseFloat(fields[1], 64); err == nil {
				return int64(n), nil
			}
		}
		return 0, ir.Errorf(ir.TypeError, "cannot parse disk hint %q", s)
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(n), nil
	}
	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, ir.Errorf(ir.TypeError, "cannot parse disk hint %q", s)
	}
	return int64(bytes / humanize.GiByte), nil
}
