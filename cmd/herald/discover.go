package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/herald-crm/herald/pkg/runtime"
	"github.com/herald-crm/herald/pkg/workflow"
)

// DiscoverCmd runs the staged customer discovery workflow and prints the
// funnel it produced: candidates, qualified customers, and contact plans.
type DiscoverCmd struct {
	Industry string `help:"Target industry (e.g. 制造业)."`
	Region   string `help:"Target region (e.g. 华东)."`
	Scale    string `help:"Target company scale (大型, 中型, 小型)."`
	Count    int    `help:"How many candidates to source." default:"10"`

	Goals        []string `help:"Workflow goals, repeatable."`
	TimelineDays int      `name:"timeline-days" help:"Due date offset in days." default:"30"`

	JSON bool `help:"Print the full task as JSON."`
}

func (c *DiscoverCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	core, err := runtime.New(ctx, cli.options())
	if err != nil {
		return err
	}
	defer core.Close()

	criteria := map[string]string{}
	if c.Industry != "" {
		criteria["industry"] = c.Industry
	}
	if c.Region != "" {
		criteria["region"] = c.Region
	}
	if c.Scale != "" {
		criteria["scale"] = c.Scale
	}
	if c.Count > 0 {
		criteria["count"] = fmt.Sprintf("%d", c.Count)
	}

	taskID, err := core.Workflow().Start(ctx, criteria, c.Goals, c.TimelineDays)
	if err != nil {
		return err
	}

	task, err := core.Workflow().Task(taskID)
	if err != nil {
		return err
	}

	if c.JSON {
		out, err := json.MarshalIndent(task, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("%s\n", task.Title)
	fmt.Printf("task %s · stage %s · progress %.0f%%\n\n", task.ID, task.Stage, task.Progress*100)

	potentials, _ := task.Results[workflow.KeyPotentialCustomers].([]workflow.PotentialCustomer)
	qualified, _ := task.Results[workflow.KeyQualifiedCustomers].([]workflow.CustomerProfile)
	plans, _ := task.Results[workflow.KeyContactPlans].([]workflow.ContactPlan)
	fmt.Printf("candidates %d → qualified %d → contact plans %d\n\n", len(potentials), len(qualified), len(plans))

	for i, plan := range plans {
		fmt.Printf("%2d. %s（%s/%s/%s）评分 %.2f\n", i+1,
			plan.Customer.Name, plan.Customer.Industry, plan.Customer.Region, plan.Customer.Scale, plan.Customer.Score)
		fmt.Printf("    渠道 %s，时机 %s\n", plan.Strategy.PrimaryChannel, plan.Strategy.BestTime)
	}
	return nil
}
