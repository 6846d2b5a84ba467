// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"github.com/sapcc/go-bits/errext"
	yaml "gopkg.in/yaml.v2"

	"github.com/sapcc/parkhaus/internal/db"
)

// NetworkConfiguration contains the contents of the configuration file
// pointed to by PARKHAUS_CONFIG_PATH. It is instantiated from YAML and then
// transformed into type Network during the startup phase.
type NetworkConfiguration struct {
	MembershipPlans []MembershipPlanConfiguration `yaml:"membership_plans"`
	DefaultPricing  Pricing                       `yaml:"default_pricing"`
}

// MembershipPlanConfiguration appears in type NetworkConfiguration.
type MembershipPlanConfiguration struct {
	Type       db.MembershipType `yaml:"type"`
	Price      float64           `yaml:"price"`
	TermMonths uint64            `yaml:"term_months"`
}

// MembershipPlan describes one purchasable membership plan.
type MembershipPlan struct {
	Price      float64
	TermMonths uint64
}

// Network contains the runtime configuration for this deployment: the
// purchasable membership plans and the pricing fallback for sites that do not
// declare their own.
type Network struct {
	MembershipPlans map[db.MembershipType]MembershipPlan
	DefaultPricing  Pricing
}

// Plan types that the config file does not mention keep these values.
// The prices are in rupees.
var defaultMembershipPlans = map[db.MembershipType]MembershipPlan{
	db.MembershipTypeMonthly:   {Price: 500, TermMonths: 1},
	db.MembershipTypeQuarterly: {Price: 1200, TermMonths: 3},
	db.MembershipTypeYearly:    {Price: 4000, TermMonths: 12},
	db.MembershipTypePremium:   {Price: 6000, TermMonths: 12},
}

var allMembershipTypes = []db.MembershipType{
	db.MembershipTypeMonthly,
	db.MembershipTypeQuarterly,
	db.MembershipTypeYearly,
	db.MembershipTypePremium,
}

// NewNetworkFromYAML reads and validates the configuration in the given YAML
// document. A nil document yields the built-in defaults.
func NewNetworkFromYAML(configBytes []byte) (network *Network, errs errext.ErrorSet) {
	var config NetworkConfiguration
	err := yaml.UnmarshalStrict(configBytes, &config)
	if err != nil {
		errs.Addf("parse configuration: %w", err)
		return nil, errs
	}

	// cannot proceed if the config is not valid
	errs.Append(config.validateConfig())
	if !errs.IsEmpty() {
		return nil, errs
	}

	network = &Network{
		MembershipPlans: make(map[db.MembershipType]MembershipPlan, len(allMembershipTypes)),
		DefaultPricing:  config.DefaultPricing,
	}
	for _, mt := range allMembershipTypes {
		network.MembershipPlans[mt] = defaultMembershipPlans[mt]
	}
	for _, plan := range config.MembershipPlans {
		network.MembershipPlans[plan.Type] = MembershipPlan{Price: plan.Price, TermMonths: plan.TermMonths}
	}
	return network, nil
}

func (config NetworkConfiguration) validateConfig() (errs errext.ErrorSet) {
	for idx, plan := range config.MembershipPlans {
		switch plan.Type {
		case db.MembershipTypeMonthly, db.MembershipTypeQuarterly, db.MembershipTypeYearly, db.MembershipTypePremium:
		default:
			errs.Addf("invalid value for membership_plans[%d].type: %q", idx, plan.Type)
		}
		if plan.Price <= 0 {
			errs.Addf("invalid value for membership_plans[%d].price: %g (must be > 0)", idx, plan.Price)
		}
		if plan.TermMonths == 0 {
			errs.Addf("missing configuration value: membership_plans[%d].term_months", idx)
		}
	}

	for vt := range config.DefaultPricing.Rates {
		if vt != db.VehicleTypeTwoWheeler && vt != db.VehicleTypeFourWheeler {
			errs.Addf("invalid vehicle class in default_pricing.rates: %q", vt)
		}
	}
	if window := config.DefaultPricing.PeakWindow; window != nil {
		for _, value := range []string{window.Start, window.End} {
			if !ClockTimeRx.MatchString(value) {
				errs.Addf("invalid value for default_pricing.peak_window: %q (must be HH:MM)", value)
			}
		}
	}
	return errs
}

// PlanFor returns the plan for the given membership type, or false if the
// type is unknown.
func (n *Network) PlanFor(membershipType db.MembershipType) (MembershipPlan, bool) {
	plan, exists := n.MembershipPlans[membershipType]
	return plan, exists
}

// PricingForSite returns the given site-level pricing if it declares any
// rates, and the configured default pricing otherwise.
func (n *Network) PricingForSite(sitePricing Pricing) Pricing {
	if len(sitePricing.Rates) == 0 {
		return n.DefaultPricing
	}
	return sitePricing
}
