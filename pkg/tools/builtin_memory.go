package tools

import "context"

type featureArgs struct {
	FeatureID string `json:"feature_id" jsonschema:"description=Feature identifier,required"`
}

type goalArgs struct {
	GoalID string `json:"goal_id,omitempty" jsonschema:"description=Goal identifier; omit for all goals"`
}

type updateFeatureArgs struct {
	FeatureID string `json:"feature_id" jsonschema:"description=Feature identifier,required"`
	Status    string `json:"status" jsonschema:"description=New status: pending in_progress completed or blocked,required"`
	Note      string `json:"note,omitempty" jsonschema:"description=Optional progress note recorded with the change"`
}

type logProgressArgs struct {
	Message   string `json:"message" jsonschema:"description=Progress note,required"`
	FeatureID string `json:"feature_id,omitempty" jsonschema:"description=Feature the note belongs to"`
}

type addTestResultArgs struct {
	FeatureID string `json:"feature_id,omitempty" jsonschema:"description=Feature the test belongs to"`
	TestName  string `json:"test_name" jsonschema:"description=Test identifier,required"`
	Status    string `json:"status" jsonschema:"description=Test outcome (passed or failed),required"`
	Details   string `json:"details,omitempty" jsonschema:"description=Failure details or notes"`
}

func (b *Builtins) getMemoryStateTool() Tool {
	return &builtinTool{
		name:        "get_memory_state",
		description: "Summarize tracked goals, feature statuses and recent progress.",
		schema:      SchemaFor(&emptyArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			return Success("get_memory_state", b.memory.Summary())
		},
	}
}

func (b *Builtins) getFeatureDetailsTool() Tool {
	return &builtinTool{
		name:        "get_feature_details",
		description: "Show one feature with its progress notes and test history.",
		schema:      SchemaFor(&featureArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args featureArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("get_feature_details", "%v", err)
			}
			details, err := b.memory.FeatureDetails(args.FeatureID)
			if err != nil {
				return Failure("get_feature_details", "%v", err)
			}
			return Success("get_feature_details", details)
		},
	}
}

func (b *Builtins) getGoalDetailsTool() Tool {
	return &builtinTool{
		name:        "get_goal_details",
		description: "Show one goal and its features, or all goals when no id is given.",
		schema:      SchemaFor(&goalArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args goalArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("get_goal_details", "%v", err)
			}
			details, err := b.memory.GoalDetails(args.GoalID)
			if err != nil {
				return Failure("get_goal_details", "%v", err)
			}
			return Success("get_goal_details", details)
		},
	}
}

func (b *Builtins) updateFeatureStatusTool() Tool {
	return &builtinTool{
		name:         "update_feature_status",
		description:  "Set a feature's status, creating the feature if needed.",
		writeCapable: true,
		schema:       SchemaFor(&updateFeatureArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args updateFeatureArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("update_feature_status", "%v", err)
			}
			if err := b.memory.UpdateFeatureStatus(args.FeatureID, args.Status, args.Note); err != nil {
				return Failure("update_feature_status", "%v", err)
			}
			return Success("update_feature_status", "Feature "+args.FeatureID+" set to "+args.Status)
		},
	}
}

func (b *Builtins) logProgressTool() Tool {
	return &builtinTool{
		name:         "log_progress",
		description:  "Append a progress note, optionally tied to a feature.",
		writeCapable: true,
		schema:       SchemaFor(&logProgressArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args logProgressArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("log_progress", "%v", err)
			}
			if args.Message == "" {
				return Failure("log_progress", "message is required")
			}
			if err := b.memory.LogProgress(args.Message, args.FeatureID); err != nil {
				return Failure("log_progress", "%v", err)
			}
			return Success("log_progress", "Progress recorded.")
		},
	}
}

func (b *Builtins) addTestResultTool() Tool {
	return &builtinTool{
		name:         "add_test_result",
		description:  "Record a test outcome, optionally tied to a feature.",
		writeCapable: true,
		schema:       SchemaFor(&addTestResultArgs{}),
		run: func(ctx context.Context, raw map[string]any) ToolResult {
			var args addTestResultArgs
			if err := DecodeArgs(raw, &args); err != nil {
				return Failure("add_test_result", "%v", err)
			}
			if args.TestName == "" || args.Status == "" {
				return Failure("add_test_result", "test_name and status are required")
			}
			if err := b.memory.AddTestResult(args.FeatureID, args.TestName, args.Status, args.Details); err != nil {
				return Failure("add_test_result", "%v", err)
			}
			return Success("add_test_result", "Test result recorded.")
		},
	}
}
