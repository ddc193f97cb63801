package bot

import "github.com/bwmarrin/discordgo"

var manageGuild int64 = discordgo.PermissionManageGuild

func commandDefinitions() []*discordgo.ApplicationCommand {
	fieldChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(settingFields))
	for _, field := range settingFields {
		fieldChoices = append(fieldChoices, &discordgo.ApplicationCommandOptionChoice{Name: field, Value: field})
	}
	presetChoices := []*discordgo.ApplicationCommandOptionChoice{
		{Name: "low", Value: "low"},
		{Name: "medium", Value: "medium"},
		{Name: "high", Value: "high"},
	}
	minLockdown := float64(0)
	minDays := float64(1)

	return []*discordgo.ApplicationCommand{
		{
			Name:                     "automod",
			Description:              "View or change automod settings",
			DefaultMemberPermissions: &manageGuild,
			DescriptionLocalizations: &map[discordgo.Locale]string{
				discordgo.French:    "Voir ou modifier l'automod",
				discordgo.EnglishUS: "View or change automod settings",
				discordgo.SpanishES: "Ver o modificar el automod",
			},
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "view",
					Description: "Show the current settings",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "preset",
					Description: "Replace the settings with a preset",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "value",
							Description: "low, medium, or high",
							Required:    true,
							Choices:     presetChoices,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "set",
					Description: "Change one setting",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "field",
							Description: "Setting to change",
							Required:    true,
							Choices:     fieldChoices,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "value",
							Description: "New value",
							Required:    true,
						},
					},
				},
			},
		},
		{
			Name:                     "lockdown",
			Description:              "Lock or unlock the server",
			DefaultMemberPermissions: &manageGuild,
			DescriptionLocalizations: &map[discordgo.Locale]string{
				discordgo.French:    "Activer ou desactiver le confinement",
				discordgo.EnglishUS: "Lock or unlock the server",
				discordgo.SpanishES: "Activar o desactivar confinamiento",
			},
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "on",
					Description: "Stop @everyone from sending messages",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "minutes",
							Description: "Lift automatically after this many minutes (0 keeps it on)",
							MinValue:    &minLockdown,
							MaxValue:    24 * 60,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "reason",
							Description: "Shown in the audit log",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "off",
					Description: "Restore @everyone permissions",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "status",
					Description: "Show lockdown state and recent joins",
				},
			},
		},
		{
			Name:                     "modreport",
			Description:              "Summarise recent automod activity",
			DefaultMemberPermissions: &manageGuild,
			DescriptionLocalizations: &map[discordgo.Locale]string{
				discordgo.French:    "Resume de l'activite de l'automod",
				discordgo.EnglishUS: "Summarise recent automod activity",
				discordgo.SpanishES: "Resumen de la actividad del automod",
			},
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "days",
					Description: "How far back to look (default 7)",
					MinValue:    &minDays,
					MaxValue:    90,
				},
			},
		},
	}
}

func (b *Bot) registerCommands() error {
	commands := commandDefinitions()

	appID := b.session.State.User.ID
	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, "", cmd.ID)
	}
	return nil
}
